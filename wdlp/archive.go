package wdlp

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Archive members we process look like "EN.dat" or "l_amat/am.dat".
var entryNamePattern = regexp.MustCompile(`(?i)^(?:.*/)?([a-z0-9]{2})\.dat$`)

// EntryName is a decoded archive member name.
type EntryName struct {
	Name string
	Code RecordType
}

// DecodeEntryName pulls the record type out of an archive member name. Names
// that aren't a two character stem with a .dat extension are an error.
func DecodeEntryName(name string) (e EntryName, err error) {
	res := entryNamePattern.FindStringSubmatch(name)
	if res == nil {
		err = fmt.Errorf("not a record file: %s", name)
		return
	}
	e.Name = name
	e.Code = RecordType(strings.ToUpper(res[1]))
	return
}

// IsRecordFile reports whether name has the .dat extension, whatever its stem.
func IsRecordFile(name string) bool {
	return strings.EqualFold(path.Ext(name), ".dat")
}

// OutputKey identifies the single output of one record type in one format.
type OutputKey struct {
	Code       RecordType
	Format     Format
	Compressed bool
}

// Name is the destination file name, e.g. EN.jsonl or EN.csv.sz.
func (k OutputKey) Name() string {
	n := string(k.Code) + "." + string(k.Format)
	if k.Compressed && k.Format.Compressible() {
		n += ".sz"
	}
	return n
}

// Path is the destination under dir.
func (k OutputKey) Path(dir string) string {
	return filepath.Join(dir, k.Name())
}
