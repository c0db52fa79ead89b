package rpn

import (
	"math"
	"time"

	"rvpf/internal/rpn/rpnerror"
	"rvpf/internal/value"
)

// mjdEpoch is the instant of Modified Julian Day 0 (1858-11-17T00:00Z).
var mjdEpoch = time.Date(1858, time.November, 17, 0, 0, 0, 0, time.UTC)

func popDateTime(t *Task) (value.DateTime, *rpnerror.Error) {
	v, err := t.Stack.Pop()
	if err != nil {
		return value.DateTime{}, err
	}
	dt, ok := v.(value.DateTime)
	if !ok {
		return value.DateTime{}, rpnerror.New(rpnerror.CastMismatch,
			"expected datetime, got %s", v.Kind())
	}
	return dt, nil
}

func popElapsed(t *Task) (value.Elapsed, *rpnerror.Error) {
	v, err := t.Stack.Pop()
	if err != nil {
		return value.Elapsed{}, err
	}
	et, ok := v.(value.Elapsed)
	if !ok {
		return value.Elapsed{}, rpnerror.New(rpnerror.CastMismatch,
			"expected elapsed, got %s", v.Kind())
	}
	return et, nil
}

// registerDateTimeOps installs the date-time and elapsed-time operations.
// All zoned views go through the context's time zone.
func registerDateTimeOps(r *Registry) {
	dt := value.KindDateTime
	et := value.KindElapsed
	dtTop := topIs(dt)
	etTop := topIs(et)

	pushInstant := func(fn func(now time.Time) time.Time) ExecFunc {
		return func(t *Task, ref Reference) error {
			t.Stack.Push(value.DateTime{Time: fn(t.Context.Now())})
			return nil
		}
	}
	startOfDay := func(at time.Time) time.Time {
		return time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	}
	r.register("now", nil, pushInstant(func(now time.Time) time.Time { return now }))
	r.register("today", nil, pushInstant(startOfDay))
	r.register("tomorrow", nil, pushInstant(func(now time.Time) time.Time {
		return startOfDay(now).AddDate(0, 0, 1)
	}))
	r.register("yesterday", nil, pushInstant(func(now time.Time) time.Time {
		return startOfDay(now).AddDate(0, 0, -1)
	}))
	r.register("midnight", nil, pushInstant(startOfDay))
	r.register("noon", nil, pushInstant(func(now time.Time) time.Time {
		return startOfDay(now).Add(12 * time.Hour)
	}))

	// DT-DT yields an elapsed time; DT±ET shifts the instant; ET±ET
	// combines durations.
	r.register("-", top2Are(dt), func(t *Task, ref Reference) error {
		y, err := popDateTime(t)
		if err != nil {
			return err
		}
		x, err := popDateTime(t)
		if err != nil {
			return err
		}
		t.Stack.Push(value.Elapsed{Duration: x.Time.Sub(y.Time)})
		return nil
	})
	r.register("+", NewFilter().Is(0, et).Is(1, dt).And(), func(t *Task, ref Reference) error {
		y, err := popElapsed(t)
		if err != nil {
			return err
		}
		x, err := popDateTime(t)
		if err != nil {
			return err
		}
		t.Stack.Push(value.DateTime{Time: x.Time.Add(y.Duration)})
		return nil
	})
	r.register("+", NewFilter().Is(0, dt).Is(1, et).And(), func(t *Task, ref Reference) error {
		y, err := popDateTime(t)
		if err != nil {
			return err
		}
		x, err := popElapsed(t)
		if err != nil {
			return err
		}
		t.Stack.Push(value.DateTime{Time: y.Time.Add(x.Duration)})
		return nil
	})
	r.register("-", NewFilter().Is(0, et).Is(1, dt).And(), func(t *Task, ref Reference) error {
		y, err := popElapsed(t)
		if err != nil {
			return err
		}
		x, err := popDateTime(t)
		if err != nil {
			return err
		}
		t.Stack.Push(value.DateTime{Time: x.Time.Add(-y.Duration)})
		return nil
	})
	r.register("+", top2Are(et), func(t *Task, ref Reference) error {
		y, err := popElapsed(t)
		if err != nil {
			return err
		}
		x, err := popElapsed(t)
		if err != nil {
			return err
		}
		t.Stack.Push(value.Elapsed{Duration: x.Duration + y.Duration})
		return nil
	})
	r.register("-", top2Are(et), func(t *Task, ref Reference) error {
		y, err := popElapsed(t)
		if err != nil {
			return err
		}
		x, err := popElapsed(t)
		if err != nil {
			return err
		}
		t.Stack.Push(value.Elapsed{Duration: x.Duration - y.Duration})
		return nil
	})

	compareDT := func(fn func(cmp int) bool) ExecFunc {
		return func(t *Task, ref Reference) error {
			y, err := popDateTime(t)
			if err != nil {
				return err
			}
			x, err := popDateTime(t)
			if err != nil {
				return err
			}
			t.Stack.Push(value.Bool(fn(x.Time.Compare(y.Time))))
			return nil
		}
	}
	dtPair := top2Are(dt)
	r.register("eq", dtPair, compareDT(func(cmp int) bool { return cmp == 0 }))
	r.register("ne", dtPair, compareDT(func(cmp int) bool { return cmp != 0 }))
	r.register("lt", dtPair, compareDT(func(cmp int) bool { return cmp < 0 }))
	r.register("le", dtPair, compareDT(func(cmp int) bool { return cmp <= 0 }))
	r.register("gt", dtPair, compareDT(func(cmp int) bool { return cmp > 0 }))
	r.register("ge", dtPair, compareDT(func(cmp int) bool { return cmp >= 0 }))

	zoned := func(t *Task, x value.DateTime) time.Time {
		loc := t.Context.Location
		if loc == nil {
			loc = time.Local
		}
		return x.Time.In(loc)
	}
	field := func(fn func(at time.Time) int64) ExecFunc {
		return func(t *Task, ref Reference) error {
			x, err := popDateTime(t)
			if err != nil {
				return err
			}
			t.Stack.Push(value.Long(fn(zoned(t, x))))
			return nil
		}
	}
	r.register("year", dtTop, field(func(at time.Time) int64 { return int64(at.Year()) }))
	r.register("month", dtTop, field(func(at time.Time) int64 { return int64(at.Month()) }))
	r.register("day", dtTop, field(func(at time.Time) int64 { return int64(at.Day()) }))
	r.register("hour", dtTop, field(func(at time.Time) int64 { return int64(at.Hour()) }))
	r.register("minute", dtTop, field(func(at time.Time) int64 { return int64(at.Minute()) }))
	r.register("second", dtTop, field(func(at time.Time) int64 { return int64(at.Second()) }))
	r.register("milli", dtTop, field(func(at time.Time) int64 {
		return int64(at.Nanosecond() / int(time.Millisecond))
	}))
	// dow is ISO: Monday is 1, Sunday is 7.
	r.register("dow", dtTop, field(func(at time.Time) int64 {
		wd := int64(at.Weekday())
		if wd == 0 {
			wd = 7
		}
		return wd
	}))
	r.register("dim", dtTop, field(func(at time.Time) int64 {
		first := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, at.Location())
		return int64(first.AddDate(0, 1, -1).Day())
	}))

	shift := func(years, months, days int, d time.Duration) func(at time.Time, sign int) time.Time {
		return func(at time.Time, sign int) time.Time {
			if d != 0 {
				return at.Add(time.Duration(sign) * d)
			}
			return at.AddDate(sign*years, sign*months, sign*days)
		}
	}
	shifts := map[string]func(at time.Time, sign int) time.Time{
		"year":   shift(1, 0, 0, 0),
		"month":  shift(0, 1, 0, 0),
		"day":    shift(0, 0, 1, 0),
		"hour":   shift(0, 0, 0, time.Hour),
		"minute": shift(0, 0, 0, time.Minute),
		"second": shift(0, 0, 0, time.Second),
		"milli":  shift(0, 0, 0, time.Millisecond),
	}
	for name, fn := range shifts {
		fn := fn
		r.register("++"+name, dtTop, func(t *Task, ref Reference) error {
			x, err := popDateTime(t)
			if err != nil {
				return err
			}
			t.Stack.Push(value.DateTime{Time: fn(zoned(t, x), 1)})
			return nil
		})
		r.register("--"+name, dtTop, func(t *Task, ref Reference) error {
			x, err := popDateTime(t)
			if err != nil {
				return err
			}
			t.Stack.Push(value.DateTime{Time: fn(zoned(t, x), -1)})
			return nil
		})
	}

	floors := map[string]func(at time.Time) time.Time{
		"year": func(at time.Time) time.Time {
			return time.Date(at.Year(), time.January, 1, 0, 0, 0, 0, at.Location())
		},
		"month": func(at time.Time) time.Time {
			return time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, at.Location())
		},
		"day":    startOfDay,
		"hour":   func(at time.Time) time.Time { return at.Truncate(time.Hour) },
		"minute": func(at time.Time) time.Time { return at.Truncate(time.Minute) },
		"second": func(at time.Time) time.Time { return at.Truncate(time.Second) },
	}
	for name, fn := range floors {
		name, fn := name, fn
		r.register("_"+name, dtTop, func(t *Task, ref Reference) error {
			x, err := popDateTime(t)
			if err != nil {
				return err
			}
			t.Stack.Push(value.DateTime{Time: fn(zoned(t, x))})
			return nil
		})
		r.register("~"+name, dtTop, func(t *Task, ref Reference) error {
			x, err := popDateTime(t)
			if err != nil {
				return err
			}
			at := zoned(t, x)
			low := fn(at)
			high := shifts[name](low, 1)
			if at.Sub(low) >= high.Sub(at) {
				t.Stack.Push(value.DateTime{Time: high})
			} else {
				t.Stack.Push(value.DateTime{Time: low})
			}
			return nil
		})
	}

	// mjd converts a date-time to its Modified Julian Day number and an
	// integer day number back to the date-time at midnight UTC.
	r.register("mjd", dtTop, func(t *Task, ref Reference) error {
		x, err := popDateTime(t)
		if err != nil {
			return err
		}
		days := x.Time.UTC().Sub(mjdEpoch) / (24 * time.Hour)
		t.Stack.Push(value.Long(int64(days)))
		return nil
	})
	r.register("mjd", topIsLong(), func(t *Task, ref Reference) error {
		days, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		t.Stack.Push(value.DateTime{Time: mjdEpoch.AddDate(0, 0, int(days))})
		return nil
	})

	// split pushes year month day hour minute and fractional seconds;
	// join is its inverse, popping in reverse order.
	r.register("split", dtTop, func(t *Task, ref Reference) error {
		x, err := popDateTime(t)
		if err != nil {
			return err
		}
		at := zoned(t, x)
		t.Stack.Push(value.Long(int64(at.Year())))
		t.Stack.Push(value.Long(int64(at.Month())))
		t.Stack.Push(value.Long(int64(at.Day())))
		t.Stack.Push(value.Long(int64(at.Hour())))
		t.Stack.Push(value.Long(int64(at.Minute())))
		seconds := float64(at.Second()) + float64(at.Nanosecond())/float64(time.Second)
		t.Stack.Push(value.Double(seconds))
		return nil
	})
	r.register("join", nil, func(t *Task, ref Reference) error {
		seconds, err := t.Stack.PopDouble()
		if err != nil {
			return err
		}
		minute, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		hour, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		day, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		month, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		year, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		loc := t.Context.Location
		if loc == nil {
			loc = time.Local
		}
		whole, frac := math.Modf(seconds)
		at := time.Date(int(year), time.Month(month), int(day),
			int(hour), int(minute), int(whole), int(frac*float64(time.Second)), loc)
		t.Stack.Push(value.DateTime{Time: at})
		return nil
	})

	// tz sets the context time zone from a name, or null to restore the
	// system zone.
	r.register("tz", topPresent(), func(t *Task, ref Reference) error {
		v, err := t.Stack.Pop()
		if err != nil {
			return err
		}
		if value.IsNull(v) {
			t.Context.Location = time.Local
			return nil
		}
		name, ok := v.(value.String)
		if !ok {
			return rpnerror.New(rpnerror.CastMismatch, "tz expects a zone name")
		}
		loc, lerr := time.LoadLocation(string(name))
		if lerr != nil {
			return rpnerror.New(rpnerror.DateTimeFormat, "unknown time zone %q", name)
		}
		t.Context.Location = loc
		return nil
	})

	r.register("raw", dtTop, func(t *Task, ref Reference) error {
		x, err := popDateTime(t)
		if err != nil {
			return err
		}
		t.Stack.Push(value.Long(x.Raw()))
		return nil
	})

	// elapsed builds a duration from seconds; seconds recovers them.
	r.register("elapsed", topIsNumber(), func(t *Task, ref Reference) error {
		seconds, err := t.Stack.PopDouble()
		if err != nil {
			return err
		}
		t.Stack.Push(value.Elapsed{Duration: time.Duration(seconds * float64(time.Second))})
		return nil
	})
	r.register("seconds", etTop, func(t *Task, ref Reference) error {
		x, err := popElapsed(t)
		if err != nil {
			return err
		}
		t.Stack.Push(value.Double(x.Duration.Seconds()))
		return nil
	})
	r.register("neg", etTop, func(t *Task, ref Reference) error {
		x, err := popElapsed(t)
		if err != nil {
			return err
		}
		t.Stack.Push(value.Elapsed{Duration: -x.Duration})
		return nil
	})
	r.register("abs", etTop, func(t *Task, ref Reference) error {
		x, err := popElapsed(t)
		if err != nil {
			return err
		}
		if x.Duration < 0 {
			x.Duration = -x.Duration
		}
		t.Stack.Push(x)
		return nil
	})

	// datetime parses an ISO text or rebuilds an instant from raw ticks.
	r.register("datetime", topIs(value.KindString), func(t *Task, ref Reference) error {
		s, err := t.Stack.PopString()
		if err != nil {
			return err
		}
		parsed, ok := parseDateTime(s, t.Context.Location)
		if !ok {
			return rpnerror.New(rpnerror.DateTimeFormat, "cannot parse date-time %q", s)
		}
		t.Stack.Push(parsed)
		return nil
	})
	r.register("datetime", topIsLong(), func(t *Task, ref Reference) error {
		ticks, err := t.Stack.PopLong()
		if err != nil {
			return err
		}
		t.Stack.Push(value.DateTimeFromRaw(ticks, t.Context.Location))
		return nil
	})
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDateTime(s string, loc *time.Location) (value.DateTime, bool) {
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dateTimeLayouts {
		if at, err := time.ParseInLocation(layout, s, loc); err == nil {
			return value.DateTime{Time: at}, true
		}
	}
	return value.DateTime{}, false
}
