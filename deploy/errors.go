package deploy

import "errors"

// ErrMappingFileMissing is returned by Deploy when neither the source
// nor target mapping file can be opened, the config-absent
// precondition from spec.md's error table.
var ErrMappingFileMissing = errors.New("deploy: mapping file missing for deploy, run checkpoint first")
