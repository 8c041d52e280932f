//go:build !windows

package report

// DefaultPresenter returns a console presenter on stderr.
func DefaultPresenter() Presenter {
	return NewConsolePresenter(nil)
}
