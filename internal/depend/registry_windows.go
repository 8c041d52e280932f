//go:build windows

package depend

import "golang.org/x/sys/windows/registry"

type systemRegistry struct{}

func (systemRegistry) Integer(path, name string) (uint64, error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, path, registry.QUERY_VALUE)
	if err != nil {
		return 0, err
	}
	defer key.Close()

	v, _, err := key.GetIntegerValue(name)
	return v, err
}

func (systemRegistry) String(path, name string) (string, error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, path, registry.QUERY_VALUE)
	if err != nil {
		return "", err
	}
	defer key.Close()

	v, _, err := key.GetStringValue(name)
	return v, err
}
