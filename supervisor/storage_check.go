// Copyright 2022 Piprate Limited
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package supervisor

import (
	"os"
	"path/filepath"
)

// Storage guardrail constants: the working directory operates inside a
// 50 MiB budget and an update only starts while at least 30 MiB of that
// budget remains free.
const (
	WorkingBudgetBytes = 50 * 1024 * 1024
	MinFreeBytes       = 30 * 1024 * 1024
)

// CheckStorage reports whether the directory still has enough free budget
// for an update to proceed.
func CheckStorage(dir string) bool {
	used := directorySize(dir)
	free := uint64(0)
	if used < WorkingBudgetBytes {
		free = WorkingBudgetBytes - used
	}
	return free >= MinFreeBytes
}

func directorySize(dir string) uint64 {
	var total uint64
	_ = filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() {
			total += uint64(info.Size())
		}
		return nil
	})
	return total
}
