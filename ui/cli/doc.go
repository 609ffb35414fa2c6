// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.
//
// Package cli implements the command-line interface for Serverprep using Cobra.
// It loads settings and the deployment descriptor, then hands the host list
// to the provisioning driver or the auditor. CLI code stays thin; the work
// happens in internal/provision, internal/audit and internal/remote.
package cli
