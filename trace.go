package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bemasher/rtlamsync/pll"
)

// Trace is one loop step as written to the trace output.
type Trace struct {
	Time   time.Time `json:"time" xml:"time,attr"`
	Offset int64     `json:"offset" xml:"offset,attr"`

	CarrierI  int32 `json:"carrier_i" xml:"CarrierI"`
	CarrierQ  int32 `json:"carrier_q" xml:"CarrierQ"`
	Err       int32 `json:"err" xml:"Err"`
	BasebandI int32 `json:"baseband_i" xml:"BasebandI"`
	BasebandQ int32 `json:"baseband_q" xml:"BasebandQ"`

	// Degrees is Err converted to degrees for display.
	Degrees float64 `json:"degrees" xml:"Degrees"`
}

// NewTrace records step r, the offset'th loop step since start.
func NewTrace(t time.Time, offset int64, r pll.StepResult, c *pll.Constants) Trace {
	return Trace{
		Time:      t,
		Offset:    offset,
		CarrierI:  r.I,
		CarrierQ:  r.Q,
		Err:       r.Err,
		BasebandI: r.Baseband.I,
		BasebandQ: r.Baseband.Q,
		Degrees:   float64(r.Err) / float64(c.Pi) * 180,
	}
}

func (t Trace) String() string {
	return fmt.Sprintf("{Time:%s Offset:%d Carrier:(%d, %d) Err:%d (%+0.2f°) Baseband:(%d, %d)}",
		t.Time.Format(time.RFC3339Nano), t.Offset, t.CarrierI, t.CarrierQ,
		t.Err, t.Degrees, t.BasebandI, t.BasebandQ,
	)
}

func (t Trace) Header() []string {
	return []string{"time", "offset", "carrier_i", "carrier_q", "err", "baseband_i", "baseband_q", "degrees"}
}

func (t Trace) Record() []string {
	return []string{
		t.Time.Format(time.RFC3339Nano),
		strconv.FormatInt(t.Offset, 10),
		strconv.FormatInt(int64(t.CarrierI), 10),
		strconv.FormatInt(int64(t.CarrierQ), 10),
		strconv.FormatInt(int64(t.Err), 10),
		strconv.FormatInt(int64(t.BasebandI), 10),
		strconv.FormatInt(int64(t.BasebandQ), 10),
		strconv.FormatFloat(t.Degrees, 'f', 2, 64),
	}
}
