package loader

import (
	"fmt"
	"slices"

	"github.com/anggasct/strata"
)

// Validate checks cfg against the region schema and reports every violation
// in a single strata.ConfigurationError.
func (l *Loader) Validate(cfg RegionConfig) error {
	var issues []string
	l.validateRegion(cfg, "root", &issues)
	if len(issues) == 0 {
		return nil
	}
	return strata.NewConfigurationError("Loader", issues...)
}

func (l *Loader) validateRegion(cfg RegionConfig, path string, issues *[]string) {
	where := path
	if cfg.Label != "" {
		where = cfg.Label
	}
	addf := func(format string, args ...any) {
		*issues = append(*issues, fmt.Sprintf("region '%s': ", where)+fmt.Sprintf(format, args...))
	}

	if len(cfg.States) == 0 {
		addf("states must not be empty")
	}
	names := make([]string, 0, len(cfg.States))
	for i, st := range cfg.States {
		switch {
		case st.Name == "":
			addf("state #%d has no name", i)
		case slices.Contains(names, st.Name):
			addf("duplicate state '%s'", st.Name)
		}
		names = append(names, st.Name)
	}
	for _, ref := range []struct{ key, name string }{{"initial", cfg.Initial}, {"final", cfg.Final}} {
		if ref.name != "" && !slices.Contains(names, ref.name) {
			addf("%s state '%s' is not declared", ref.key, ref.name)
		}
	}
	for _, key := range cfg.Inherits {
		if key == "" {
			addf("inherited key must not be empty")
		}
	}

	for _, st := range cfg.States {
		for j, t := range st.Transitions {
			switch {
			case t.Target == "":
				addf("state '%s': transition #%d has no target", st.Name, j)
			case !slices.Contains(names, t.Target):
				addf("state '%s': transition target '%s' is not declared", st.Name, t.Target)
			}
			if t.Guard != nil && !t.Guard.isZero() {
				if msg := l.checkCallback(*t.Guard); msg != "" {
					addf("state '%s': transition #%d guard: %s", st.Name, j, msg)
				}
			}
		}

		for _, hook := range []struct {
			key     string
			entries []ActionConfig
		}{{"onEnter", st.OnEnter}, {"onExit", st.OnExit}, {"action", st.Action}} {
			for j, a := range hook.entries {
				if msg := l.checkCallback(a.Run); msg != "" {
					addf("state '%s': %s #%d: %s", st.Name, hook.key, j, msg)
				}
			}
		}

		for j, sub := range st.Regions {
			l.validateRegion(sub, fmt.Sprintf("%s/%s[%d]", where, st.Name, j), issues)
		}
	}
}

func (l *Loader) checkCallback(c Callback) string {
	switch {
	case c.value != nil:
		return ""
	case c.isZero():
		return "run is required"
	case c.Tag == "":
		return fmt.Sprintf("%s has no helper tag", c)
	}
	if _, ok := l.helpers[c.Tag]; !ok {
		return fmt.Sprintf("undefined helper '%s'", c.Tag)
	}
	return ""
}
