package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jmylchreest/autoduck/internal/model"
)

// Normalize lower-cases and de-duplicates every app list, then removes from
// music every identity also listed as priority. It returns the identities
// that were removed from music.
func (a *AppsConfig) Normalize() []string {
	a.Priority = normalizeList(a.Priority)
	a.Music = normalizeList(a.Music)
	a.Ignored = normalizeList(a.Ignored)

	var moved []string
	a.Music = slices.DeleteFunc(a.Music, func(id string) bool {
		if slices.Contains(a.Priority, id) {
			moved = append(moved, id)
			return true
		}
		return false
	})
	return moved
}

func normalizeList(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		id := model.NormalizeIdentity(n)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Classification builds the role table from the lists.
func (a AppsConfig) Classification() *model.Classification {
	return model.NewClassification(a.Priority, a.Music, a.Ignored)
}

// list returns the list for a role.
func (a *AppsConfig) list(role model.Role) (*[]string, error) {
	switch role {
	case model.RolePriority:
		return &a.Priority, nil
	case model.RoleMusic:
		return &a.Music, nil
	case model.RoleIgnored:
		return &a.Ignored, nil
	default:
		return nil, fmt.Errorf("cannot assign apps to role %q", role)
	}
}

// AddApp adds name to the list for role. Priority and music are exclusive:
// adding to one removes the name from the other.
func (a *AppsConfig) AddApp(role model.Role, name string) error {
	id := model.NormalizeIdentity(name)
	if id == "" {
		return fmt.Errorf("empty app name")
	}
	dst, err := a.list(role)
	if err != nil {
		return err
	}

	switch role {
	case model.RolePriority:
		a.Music = slices.DeleteFunc(a.Music, func(s string) bool { return s == id })
	case model.RoleMusic:
		a.Priority = slices.DeleteFunc(a.Priority, func(s string) bool { return s == id })
	}
	if !slices.Contains(*dst, id) {
		*dst = append(*dst, id)
	}
	return nil
}

// RemoveApp removes name from every list. It reports whether anything changed.
func (a *AppsConfig) RemoveApp(name string) bool {
	id := model.NormalizeIdentity(name)
	removed := false
	for _, l := range []*[]string{&a.Priority, &a.Music, &a.Ignored} {
		before := len(*l)
		*l = slices.DeleteFunc(*l, func(s string) bool { return s == id })
		removed = removed || len(*l) != before
	}
	return removed
}

// EngineKeys lists the keys accepted by Set.
var EngineKeys = []string{
	"volume_normal",
	"volume_ducked",
	"peak_threshold",
	"restore_delay",
	"fade_out",
	"fade_in",
	"poll_interval",
	"restore_on_stop",
	"autostart",
}

// Set parses value into the engine key and validates the result. Keys may
// carry an "engine." prefix. The config is unchanged on error.
func (c *Config) Set(key, value string) error {
	next := *c
	e := &next.Engine

	var err error
	switch strings.TrimPrefix(key, "engine.") {
	case "volume_normal":
		e.VolumeNormal, err = strconv.ParseFloat(value, 64)
	case "volume_ducked":
		e.VolumeDucked, err = strconv.ParseFloat(value, 64)
	case "peak_threshold":
		e.PeakThreshold, err = strconv.ParseFloat(value, 64)
	case "restore_delay":
		err = e.RestoreDelay.UnmarshalText([]byte(value))
	case "fade_out":
		err = e.FadeOut.UnmarshalText([]byte(value))
	case "fade_in":
		err = e.FadeIn.UnmarshalText([]byte(value))
	case "poll_interval":
		err = e.PollInterval.UnmarshalText([]byte(value))
	case "restore_on_stop":
		e.RestoreOnStop, err = strconv.ParseBool(value)
	case "autostart":
		e.Autostart, err = strconv.ParseBool(value)
	default:
		return fmt.Errorf("unknown key %q, must be one of: %s", key, strings.Join(EngineKeys, ", "))
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

