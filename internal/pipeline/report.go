package pipeline

import (
	"errors"

	"github.com/infinite-dreams/igame-bootstrapper/internal/depend"
	"github.com/infinite-dreams/igame-bootstrapper/internal/report"
	"github.com/infinite-dreams/igame-bootstrapper/pkg/api"
)

// ReportSink sends pipeline failures to the error reporter. Download
// failures are fatal unless the service is under maintenance, which is
// shown without being uploaded.
type ReportSink struct {
	Reporter *report.Reporter
}

func (s ReportSink) DownloadFailed(k depend.Kind, err error) {
	var me *api.MaintenanceError
	if errors.As(err, &me) {
		s.Reporter.Maintenance(me.Until)
		return
	}
	s.Reporter.Fail(report.NetworkFailure, "failed to download runtime "+k.Name(), err, report.FatalOptions)
}

func (s ReportSink) InstallFailed(k depend.Kind, err error) {
	s.Reporter.Fail(report.InstallFailure, "install error: "+k.Name(), err, report.NonFatalOptions)
}
