// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"sort"

	"github.com/atlanmod/resources/log"
)

// BuildSuperMod resolves conflicts across all mods and returns the
// consolidated set of winning files, sorted by asset path. For each asset
// path the file from the mod with the lowest load priority wins; on ties
// the later-encountered file wins. Every conflict is logged with both
// provenances.
func BuildSuperMod(mods []*ModDef, logger *log.Helper) []*ModFile {
	winners := make(map[string]*ModFile)

	for _, mod := range mods {
		for i := range mod.Files {
			file := &mod.Files[i]

			prev, ok := winners[file.AssetPath]
			if !ok {
				winners[file.AssetPath] = file
				continue
			}

			replace := mod.LoadPriority <= prev.Parent.LoadPriority
			winner := "(B)"
			if replace {
				winner = "(A)"
			}
			logger.Warnf("conflict on %s\n(A): %s - %s\n(B): %s - %s\nwinner: %s",
				file.AssetPath,
				mod.Name, file.RealPath,
				prev.Parent.Name, prev.RealPath,
				winner)

			if replace {
				winners[file.AssetPath] = file
			}
		}
	}

	supermod := make([]*ModFile, 0, len(winners))
	for _, file := range winners {
		supermod = append(supermod, file)
	}

	// Stable output order keeps repeated injections byte-identical.
	sort.Slice(supermod, func(a, b int) bool {
		return supermod[a].AssetPath < supermod[b].AssetPath
	})
	return supermod
}
