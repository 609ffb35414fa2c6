// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.
// Package config provides loading and persistence of Serverprep's own
// settings (SSH options, descriptor location, language). It uses Viper for
// file/env/flag parsing. The deployment descriptor itself is read by
// internal/deployfile.
package config
