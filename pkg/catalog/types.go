// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

// LocalDirectory is a registered scan root. Immutable once created, aside
// from copy_count bookkeeping.
type LocalDirectory struct {
	ID        int64
	Path      string
	Active    bool
	Recurse   bool
	Compress  bool
	Encrypt   bool
	CopyCount int64
}

// LocalFile is one file observed under a LocalDirectory.
type LocalFile struct {
	ID               int64
	LocalDirectoryID int64
	RelativePath     string
	CreateTimeUnix   int64
	ModifyTimeUnix   int64
	ScanTimeUnix     int64
	CopyTimeUnix     int64
}

// StorageNode is a replication target. node_name is resolved by the
// transport layer (pkg/nodeclient); the catalog treats it as opaque.
type StorageNode struct {
	ID           int64
	NodeName     string
	Active       bool
	PingTimeUnix int64
	CopyTimeUnix int64
}

// Vault is the association of one LocalDirectory with one StorageNode.
// Compress/Encrypt are inherited from the directory at creation and locked
// thereafter.
type Vault struct {
	ID               int64
	StorageNodeID    int64
	LocalDirectoryID int64
	Compress         bool
	Encrypt          bool
}

// VaultFile is one LocalFile as placed into one Vault.
type VaultFile struct {
	ID             int64
	VaultID        int64
	LocalFileID    int64
	CreateTimeUnix int64
	ModifyTimeUnix int64
	OriginFilesize int64
	BlockCount     int64
	UserPerms      string
	GroupPerms     string
	OtherPerms     string
}

// VaultFileBlock is one placed block of a VaultFile: one row per
// (vault_file_id, block_sequence_number), sequence numbers starting at 1.
type VaultFileBlock struct {
	ID                  int64
	VaultFileID         int64
	CreateTimeUnix      int64
	ModifyTimeUnix      int64
	StoredTimeUnix      int64
	OriginFilesize      int64
	StoredFilesize      int64
	BlockSequenceNumber int64
	PadCharCount        int64
	UniqueIdentifier    string
	NodeDirectory       string
	NodeFile            string
}
