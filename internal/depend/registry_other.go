//go:build !windows

package depend

import "errors"

var errNoRegistry = errors.New("registry is only available on windows")

type systemRegistry struct{}

func (systemRegistry) Integer(string, string) (uint64, error) { return 0, errNoRegistry }

func (systemRegistry) String(string, string) (string, error) { return "", errNoRegistry }
