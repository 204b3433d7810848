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

// Package exclusions is the per-directory name/prefix/suffix filter the
// Scanner consults before traversing a directory or opening a file.
package exclusions

import "strings"

// List holds one directory's exclusion rules, loaded from its
// [Exclusions:<dir-path>] configuration section.
type List struct {
	DirNames     []string
	DirPrefixes  []string
	FileNames    []string
	FileSuffixes []string
}

// ExcludeDirectory reports whether basename matches an exact dir_names
// entry or starts with any dir_prefixes entry.
func (l List) ExcludeDirectory(basename string) bool {
	for _, name := range l.DirNames {
		if basename == name {
			return true
		}
	}
	for _, prefix := range l.DirPrefixes {
		if prefix != "" && strings.HasPrefix(basename, prefix) {
			return true
		}
	}
	return false
}

// ExcludeFile reports whether basename matches an exact file_names entry
// or ends with any file_suffixes entry.
func (l List) ExcludeFile(basename string) bool {
	for _, name := range l.FileNames {
		if basename == name {
			return true
		}
	}
	for _, suffix := range l.FileSuffixes {
		if suffix != "" && strings.HasSuffix(basename, suffix) {
			return true
		}
	}
	return false
}
