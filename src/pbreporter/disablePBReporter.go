/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package pbreporter

import "github.com/yugabyte/oraddl/src/utils"

// DisablePBReporter tracks the same state as the bar without rendering
// anything; progress stays visible through the log only.
type DisablePBReporter struct {
	TotalObjects    int64
	CurrentObjects  int64
	IsCompleted     bool
	TriggerComplete bool
}

func newDisablePBReporter() *DisablePBReporter {
	return &DisablePBReporter{}
}

func (pbr *DisablePBReporter) SetTotalObjectCount(totalObjectCount int64, triggerComplete bool) {
	pbr.TriggerComplete = triggerComplete
	if totalObjectCount < 0 {
		pbr.TotalObjects = pbr.CurrentObjects
	} else {
		pbr.TotalObjects = totalObjectCount
	}
	if triggerComplete && !pbr.IsCompleted {
		pbr.IsCompleted = true
		pbr.CurrentObjects = pbr.TotalObjects
	}
}

func (pbr *DisablePBReporter) SetExportedObjectCount(exportedObjectCount int64) {
	if exportedObjectCount < 0 {
		utils.ErrExit("cannot maintain negative exported object count in PB")
	}
	pbr.CurrentObjects = exportedObjectCount
	if pbr.TriggerComplete && pbr.CurrentObjects >= pbr.TotalObjects {
		pbr.CurrentObjects = pbr.TotalObjects
		pbr.IsCompleted = true
	}
}

func (pbr *DisablePBReporter) IsComplete() bool {
	return pbr.IsCompleted
}
