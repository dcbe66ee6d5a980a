package fuse

import (
	"fmt"
	"math"

	"github.com/whenfs/whenfs/internal/cache"
)

// recoveryFileName is a read-only file synthesized at the volume root,
// grounded on the prototype's WelcomeToWhenFS (fs.rs::WhenFS::new). Its
// inode is a reserved sentinel the cache never allocates (inode numbers
// start at cache.RootIno+1 and grow from there), so it never collides
// with a real file.
const recoveryFileName = ".whenfs-recovery"

const recoveryIno cache.Ino = cache.Ino(math.MaxUint64)

// recoveryContents is generated lazily on Read rather than stored as
// cache content, since the --root-event value it reports is empty
// until the volume's first flush assigns the root record id.
func recoveryContents(c *cache.Cache) []byte {
	return []byte(fmt.Sprintf(`Welcome to WhenFS!
If you're reading this, you've turned a Google calendar into a FUSE filesystem.
To remount this volume, run whenfs with the following arguments.
The --root-event value is empty until the volume's first flush and
does not change after that.

--calendar %s
--root-event %s
`, c.CalendarID(), c.RootRecordID()))
}
