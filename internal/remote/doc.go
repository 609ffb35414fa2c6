// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package remote connects to hosts over SSH, runs command blocks on them and
// reads remote files over SFTP.
//
// A Client holds one TCP connection. Every Run opens a fresh exec session on
// it and waits for the command to finish; a non-zero exit status is reported
// in the Result, not as an error. Only the connect and handshake are bounded
// by a timeout.
package remote
