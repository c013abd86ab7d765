package cmn

import "github.com/duskline/backend/3rdparty/atomic"

// tieAlphabet mirrors the teacher's uuidABC: the URL-safe alphabet GenTie
// draws its characters from.
const tieAlphabet = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var rtie atomic.Int64

// GenTie returns a three-character token built from the low 8 bits of a
// process-wide counter, so the same token comes back every 256 calls; the
// tokens do not sort in call order. Used as a suffix for temp-file names and
// as the prefix of a profile_version.
func GenTie() string {
	tie := rtie.Add(1)
	b0 := tieAlphabet[tie&0x3f]
	b1 := tieAlphabet[(-tie)&0x3f]
	b2 := tieAlphabet[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}
