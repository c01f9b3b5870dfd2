package plan

import (
	"context"
	"fmt"

	"github.com/viant/afs"
)

// Load reads a plan from any location afs supports: a local path, file://,
// mem:// or a registered cloud storage scheme. The extension picks the
// format.
func Load(ctx context.Context, location string) (*Plan, error) {
	f, err := FormatFor(location)
	if err != nil {
		return nil, err
	}

	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, &Error{Code: ErrCodeLoad, Message: fmt.Sprintf("failed to read %s", location), Err: err}
	}
	return parse(location, data, f)
}
