// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package plugin

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Error codes attached to manager errors via oops. Callers match on
// these with errutil.HasCode rather than on message text.
const (
	CodeValidationFailed = "PLUGIN_VALIDATION_FAILED"
	CodeDependencyFailed = "PLUGIN_DEPENDENCY_FAILED"
	CodeLoadFailed       = "PLUGIN_LOAD_FAILED"
	CodeInstallFailed    = "PLUGIN_INSTALL_FAILED"
	CodeNotFound         = "PLUGIN_NOT_FOUND"
)

func errb(code, pluginID string) oops.OopsErrorBuilder {
	return oops.Code(code).In("plugin").With("plugin_id", pluginID)
}

// DependencyBlockedError reports that an operation on a plugin was
// refused because other loaded plugins still depend on it.
type DependencyBlockedError struct {
	PluginID   string
	Dependents []string
}

func (e *DependencyBlockedError) Error() string {
	return fmt.Sprintf("plugin %q is required by loaded plugins: %s",
		e.PluginID, strings.Join(e.Dependents, ", "))
}
