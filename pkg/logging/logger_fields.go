package logging

import (
	"time"
)

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Time formats t as RFC3339, or "unset" for the zero time
func Time(key string, t time.Time) Field {
	if t.IsZero() {
		return Field{Key: key, Value: "unset"}
	}
	return Field{Key: key, Value: t.Format(time.RFC3339)}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

func Component(name string) Field {
	return String("component", name)
}

func Stage(name string) Field {
	return String("stage", name)
}

func NodeID(id string) Field {
	return String("node_id", id)
}

// NodeKind records the node type (Patient, Room, Device, Employee)
func NodeKind(kind string) Field {
	return String("node_type", kind)
}

func EdgeKind(kind string) Field {
	return String("edge_type", kind)
}

// Pair records the two endpoints of an edge or path
func Pair(u, v string) Field {
	return Field{Key: "pair", Value: [2]string{u, v}}
}

// Snapshot records the cutoff time of the graph being processed
func Snapshot(t time.Time) Field {
	return Time("snapshot_at", t)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}

func Path(p string) Field {
	return String("path", p)
}

// Progress records done/total work units and the completed percentage
func Progress(done, total int) Field {
	pct := 0.0
	if total > 0 {
		pct = float64(done) * 100 / float64(total)
	}
	return Field{Key: "progress", Value: map[string]any{"done": done, "total": total, "percent": pct}}
}
