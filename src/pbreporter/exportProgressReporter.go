package pbreporter

import "github.com/vbauerster/mpb/v8"

type ExportProgressReporter interface { // Bare minimum required to simulate mpb.bar for per-artifact progress
	SetTotalObjectCount(totalObjectCount int64, triggerComplete bool)
	SetExportedObjectCount(exportedObjectCount int64)
	IsComplete() bool
}

func NewExportPB(progressContainer *mpb.Progress, name string, disablePb bool) ExportProgressReporter {
	if disablePb {
		return newDisablePBReporter()
	}
	return newEnablePBReporter(progressContainer, name)
}
