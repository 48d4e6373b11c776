// Package translate turns abstract task actions into the fixed-shape command
// records understood by the robots.
package translate

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
)

// Action kinds.
const (
	KindMove           = "MOVE"
	KindLatch          = "LATCH"
	KindUnlatch        = "UNLATCH"
	KindReverse        = "REVERSE"
	KindWaitForTrigger = "WAIT FOR TRIGGER"
	KindWait           = "WAIT"
	KindReleaseTrigger = "RELEASE TRIGGER"
	KindHorn           = "HORN"
	KindAnnounce       = "ANNOUNCE"
	KindRotate         = "ROTATE"
)

type translator func(cfg params) (model.Command, error)

var table = map[string]translator{
	KindMove: func(p params) (model.Command, error) {
		return model.Command{"Move to indexed location", p.raw("location")}, nil
	},
	KindLatch: func(params) (model.Command, error) {
		return model.Command{"Latch", map[string]any{}}, nil
	},
	KindUnlatch: func(params) (model.Command, error) {
		return model.Command{"Unlatch", map[string]any{}}, nil
	},
	KindReverse: translateReverse,
	KindWaitForTrigger: func(p params) (model.Command, error) {
		return model.Command{"Wait for specified trigger", p.raw("trigger_id")}, nil
	},
	KindWait: func(p params) (model.Command, error) {
		d, err := p.float("wait_time", 0)
		if err != nil {
			return nil, err
		}
		return model.Command{"Wait for specified time", d}, nil
	},
	KindReleaseTrigger: func(p params) (model.Command, error) {
		state := p.raw("state")
		if state == nil {
			state = false
		}
		return model.Command{"Release trigger", p.raw("wait_id"), state}, nil
	},
	KindHorn: func(p params) (model.Command, error) {
		n, err := p.int("repetitions", 1)
		if err != nil {
			return nil, err
		}
		return model.Command{"Horn", p.raw("horn"), n}, nil
	},
	KindAnnounce: func(p params) (model.Command, error) {
		n, err := p.int("repetitions", 1)
		if err != nil {
			return nil, err
		}
		return model.Command{"Voice announcement", p.raw("announcement"), n}, nil
	},
	KindRotate: func(p params) (model.Command, error) {
		angle, err := p.float("steering_angle", 50)
		if err != nil {
			return nil, err
		}
		diff, err := p.float("target_diff", 180)
		if err != nil {
			return nil, err
		}
		return model.Command{"Inplace Rotation", angle, diff}, nil
	},
}

// reverseTuning lists the numeric reverse-maneuver parameters in wire order.
var reverseTuning = []struct {
	key string
	def float64
}{
	{"y_threshold", 0.02},
	{"x_threshold", 0},
	{"ka_1", -50},
	{"ka_2", -50},
	{"kc", 0},
	{"speed", 10},
	{"angle_factor", 1.5},
	{"zone", 99},
	{"vehicle_latch_distance", -0.7},
	{"latch_project_dist", 0.7},
}

func translateReverse(p params) (model.Command, error) {
	cmd := model.Command{"Reverse", p.raw("state"), p.raw("name")}
	for _, t := range reverseTuning {
		v, err := p.float(t.key, t.def)
		if err != nil {
			return nil, err
		}
		cmd = append(cmd, v)
	}
	hitch, err := p.bool("hitch", true)
	if err != nil {
		return nil, err
	}
	return append(cmd, hitch), nil
}

// Known reports whether kind has a translation.
func Known(kind string) bool {
	_, ok := table[kind]
	return ok
}

// Kinds returns every supported action kind.
func Kinds() []string {
	return []string{
		KindMove, KindLatch, KindUnlatch, KindReverse, KindWaitForTrigger,
		KindWait, KindReleaseTrigger, KindHorn, KindAnnounce, KindRotate,
	}
}

// Action translates a single action.
func Action(a model.Action) (model.Command, error) {
	fn, ok := table[a.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action kind %q", core.ErrInvalidArgument, a.Kind)
	}
	cmd, err := fn(params(a.Config))
	if err != nil {
		return nil, fmt.Errorf("%w: action %s: %v", core.ErrInvalidArgument, a.Kind, err)
	}
	return cmd, nil
}

// Sequence translates actions in order. It fails on the first action that
// cannot be translated.
func Sequence(actions []model.Action) ([]model.Command, error) {
	out := make([]model.Command, 0, len(actions))
	for i, a := range actions {
		cmd, err := Action(a)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, cmd)
	}
	return out, nil
}

// params reads action configuration values that may arrive as numbers or
// strings.
type params map[string]any

func (p params) raw(key string) any {
	return p[key]
}

func (p params) float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil || v == "" {
		return def, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func (p params) int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil || v == "" {
		return def, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	// float64(math.MaxInt) rounds up to 2^63, which is already out of range.
	if f != math.Trunc(f) || f < float64(math.MinInt) || f >= float64(math.MaxInt) {
		return 0, fmt.Errorf("%s: %v is not an integer", key, v)
	}
	return int(f), nil
}

func (p params) bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	if s, isString := v.(string); isString {
		return strings.EqualFold(strings.TrimSpace(s), "true"), nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
