package macho

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/leanderhendrikx/weedless/internal/config"
	"github.com/leanderhendrikx/weedless/types"
)

// Apply runs the full patch algorithm against img for the validated cfg:
// ensure every configured dylib is present as a load command (injecting
// LC_LOAD_DYLIB for any that are missing), build the resulting dylib ordinal
// map, walk the lazy-bind stream once, and rewrite the ordinal of every
// lazy-bound occurrence of a configured hook's symbol.
//
// This ordering is load-bearing: appending commands after the ordinal map is
// built would invalidate it, and the lazy-bind stream is only walked once
// appends are done since injecting a command grows sizeofcmds but never
// relocates the bind stream itself.
func Apply(img *Image, cfg config.Config) error {
	for _, d := range cfg.Dylibs {
		present, err := dylibPresent(img, d.InstallName)
		if err != nil {
			return errors.Wrap(err, "scanning existing load commands")
		}
		if present {
			continue
		}
		if err := img.AppendLoadCommand(BuildLoadDylibCommand(d.InstallName)); err != nil {
			return errors.Wrapf(err, "injecting load dylib %q", d.InstallName)
		}
	}

	ordinals, err := buildOrdinalMap(img)
	if err != nil {
		return errors.Wrap(err, "building dylib ordinal map")
	}

	info, _, err := img.FindDyldInfo()
	if err != nil {
		return errors.Wrap(err, "locating dyld info")
	}
	entries, err := WalkLazyBinds(img.Data, int(info.LazyBindOff), int(info.LazyBindSize))
	if err != nil {
		return errors.Wrap(err, "walking lazy-bind stream")
	}

	for _, hook := range cfg.Hooks {
		dylib, ok := cfg.DylibByName(hook.DylibName)
		if !ok {
			return errors.Wrapf(ErrUnknownHookDylib, "hook %q: dylib %q not in config", hook.Symbol, hook.DylibName)
		}
		ordinal, ok := ordinals[dylib.InstallName]
		if !ok {
			return errors.Wrapf(ErrUnknownHookDylib, "hook %q: dylib %q", hook.Symbol, dylib.InstallName)
		}
		for _, e := range entries {
			if e.SymbolName != hook.Symbol {
				continue
			}
			if e.Kind == OrdinalNone {
				continue
			}
			if err := e.SetOrdinal(ordinal, img); err != nil {
				return errors.Wrapf(err, "rewriting ordinal for symbol %q", hook.Symbol)
			}
		}
	}

	return nil
}

func dylibPresent(img *Image, installName string) (bool, error) {
	cmds, err := img.LoadCommands()
	if err != nil {
		return false, err
	}
	for _, c := range cmds {
		if !c.Kind.IsDylib() && c.Kind != types.LC_LOAD_DYLINKER {
			continue
		}
		if DylibPath(img, c) == installName {
			return true, nil
		}
	}
	return false, nil
}

// buildOrdinalMap enumerates dylib-bearing load commands in file order and
// assigns them the ordinal space the lazy-bind stream's opcodes index into:
// LC_LOAD_DYLINKER occupies ordinal 0 (mirroring the binary it was
// distilled from, which prepends the dylinker command to the dylib list
// before indexing); LC_LOAD_DYLIB / LC_LOAD_WEAK_DYLIB / LC_LOAD_UPWARD_DYLIB
// follow in order of appearance, starting at 1.
func buildOrdinalMap(img *Image) (map[string]uint64, error) {
	cmds, err := img.LoadCommands()
	if err != nil {
		return nil, err
	}

	ordinals := make(map[string]uint64)
	var dylinker *LoadCommand
	var dylibs []LoadCommand

	for i := range cmds {
		switch {
		case cmds[i].Kind == types.LC_LOAD_DYLINKER:
			c := cmds[i]
			dylinker = &c
		case cmds[i].Kind.IsDylib():
			dylibs = append(dylibs, cmds[i])
		}
	}

	next := uint64(1)
	if dylinker != nil {
		ordinals[DylibPath(img, *dylinker)] = 0
	}
	for _, c := range dylibs {
		path := DylibPath(img, c)
		if _, exists := ordinals[path]; exists {
			return nil, fmt.Errorf("%w: duplicate dylib path %q", ErrMalformedImage, path)
		}
		ordinals[path] = next
		next++
	}

	return ordinals, nil
}
