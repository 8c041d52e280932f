//go:build windows

package report

import "golang.org/x/sys/windows"

const dialogTitle = "IGame Bootstrapper"

// DialogPresenter shows a modal MessageBoxW.
type DialogPresenter struct{}

func (DialogPresenter) ShowError(msg string) {
	text, err := windows.UTF16PtrFromString(msg)
	if err != nil {
		log.Warn("cannot encode dialog text", "error", err)
		return
	}
	title, _ := windows.UTF16PtrFromString(dialogTitle)
	if _, err := windows.MessageBox(0, text, title, windows.MB_OK|windows.MB_ICONERROR|windows.MB_TOPMOST); err != nil {
		log.Warn("failed to show error dialog", "error", err)
	}
}

// DefaultPresenter returns the native dialog presenter.
func DefaultPresenter() Presenter {
	return DialogPresenter{}
}
