package fuse

import "testing"

func TestCheckAccessRootBypassesPermissions(t *testing.T) {
	// Root may read/write regardless of mode, but may only exec if some
	// exec bit is set (fs.rs::check_access's own quirk, reproduced here).
	if !checkAccess(100, 100, 0o600, 0, 0, 0x6) {
		t.Fatal("root should be allowed to read+write a 0600 file it doesn't own")
	}
	if checkAccess(100, 100, 0o600, 0, 0, 0x1) {
		t.Fatal("root should not be allowed to exec a file with no exec bits set")
	}
	if !checkAccess(100, 100, 0o711, 0, 0, 0x1) {
		t.Fatal("root should be allowed to exec a file with any exec bit set")
	}
}

func TestCheckAccessOwnerGroupOther(t *testing.T) {
	const uid, gid = 1000, 1000
	if !checkAccess(uid, gid, 0o640, uid, gid, 0x6) {
		t.Fatal("owner should have read+write under 0640")
	}
	if checkAccess(uid, gid, 0o640, uid, gid, 0x1) {
		t.Fatal("owner should not have exec under 0640")
	}
	if !checkAccess(uid, gid, 0o640, 2000, gid, 0x4) {
		t.Fatal("group member should have read under 0640")
	}
	if checkAccess(uid, gid, 0o640, 2000, gid, 0x2) {
		t.Fatal("group member should not have write under 0640")
	}
	if checkAccess(uid, gid, 0o640, 2000, 2000, 0x4) {
		t.Fatal("other should not have read under 0640")
	}
}

func TestCheckAccessFOkAlwaysTrue(t *testing.T) {
	if !checkAccess(1, 1, 0, 2, 2, 0) {
		t.Fatal("F_OK (mask 0) should always succeed")
	}
}
