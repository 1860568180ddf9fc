package sensor

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type fakeDriver struct {
	configureErr error
	probeErr     error
	readErr      error
	value        float64

	configureCalls int
	probeCalls     int
	readCalls      int
}

func (d *fakeDriver) Configure() error {
	d.configureCalls++
	return d.configureErr
}

func (d *fakeDriver) Probe() error {
	d.probeCalls++
	return d.probeErr
}

func (d *fakeDriver) Read() (Reading, error) {
	d.readCalls++
	if d.readErr != nil {
		return Reading{}, d.readErr
	}
	r := NewReading()
	r.Temperature = d.value
	return r, nil
}

var errDevice = errors.New("no ack")

func newTestMonitor() *Monitor {
	return NewMonitor(10*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMonitorBoot(t *testing.T) {
	Convey("Given an uninitialized channel", t, func() {
		m := newTestMonitor()
		d := &fakeDriver{value: 21.5}
		ch := NewChannel(DryTempProbe, d)
		t0 := time.Unix(1000, 0)

		So(ch.State, ShouldEqual, Uninitialized)

		Convey("a successful configuration makes it OK", func() {
			m.Boot(ch, t0)
			So(ch.State, ShouldEqual, OK)
			So(d.configureCalls, ShouldEqual, 1)

			r, ok := m.Read(ch, t0)
			So(ok, ShouldBeTrue)
			So(r.Temperature, ShouldEqual, 21.5)
			So(r.At.Equal(t0), ShouldBeTrue)
			So(ch.HasReading, ShouldBeTrue)
		})

		Convey("a failed configuration makes it FAILED", func() {
			d.configureErr = errDevice
			m.Boot(ch, t0)
			So(ch.State, ShouldEqual, Failed)
			So(ch.Failures, ShouldEqual, uint64(1))

			var de DeviceError
			So(errors.As(ch.LastErr, &de), ShouldBeTrue)
			So(de.Op, ShouldEqual, "configure")
			So(errors.Is(ch.LastErr, errDevice), ShouldBeTrue)

			Convey("and it is not read", func() {
				_, ok := m.Read(ch, t0)
				So(ok, ShouldBeFalse)
				So(d.readCalls, ShouldEqual, 0)
			})
		})

		Convey("boot runs only once", func() {
			m.Boot(ch, t0)
			m.Boot(ch, t0)
			So(d.configureCalls, ShouldEqual, 1)
		})
	})
}

func TestMonitorRecovery(t *testing.T) {
	Convey("Given an OK channel whose read fails", t, func() {
		m := newTestMonitor()
		d := &fakeDriver{value: 400}
		ch := NewChannel(CO2Sensor, d)
		t0 := time.Unix(1000, 0)
		m.Boot(ch, t0)

		d.readErr = errDevice
		_, ok := m.Read(ch, t0.Add(time.Second))
		So(ok, ShouldBeFalse)
		So(ch.State, ShouldEqual, Failed)

		Convey("further reads do not touch the driver", func() {
			m.Read(ch, t0.Add(2*time.Second))
			m.Read(ch, t0.Add(3*time.Second))
			So(d.readCalls, ShouldEqual, 1)
		})

		Convey("no probe runs before the interval has passed", func() {
			So(m.ProbeDue(ch, t0.Add(10*time.Second)), ShouldBeFalse)
			So(m.Probe(ch, t0.Add(10*time.Second)), ShouldBeFalse)
			So(d.probeCalls, ShouldEqual, 0)
		})

		Convey("a failed probe keeps it FAILED and waits another interval", func() {
			d.probeErr = errDevice
			at := t0.Add(11 * time.Second)
			So(m.Probe(ch, at), ShouldBeFalse)
			So(ch.State, ShouldEqual, Failed)
			So(d.configureCalls, ShouldEqual, 1)

			So(m.Probe(ch, at.Add(time.Second)), ShouldBeFalse)
			So(d.probeCalls, ShouldEqual, 1)
		})

		Convey("a probe that answers but cannot be configured stays FAILED", func() {
			d.configureErr = errDevice
			So(m.Probe(ch, t0.Add(11*time.Second)), ShouldBeFalse)
			So(ch.State, ShouldEqual, Failed)
			So(d.configureCalls, ShouldEqual, 2)
		})

		Convey("a successful probe restores it from the next tick", func() {
			d.readErr = nil
			at := t0.Add(11 * time.Second)
			So(m.Probe(ch, at), ShouldBeTrue)
			So(ch.State, ShouldEqual, OK)
			So(ch.Recoveries, ShouldEqual, uint64(1))
			So(ch.LastErr, ShouldBeNil)

			_, ok := m.Read(ch, at)
			So(ok, ShouldBeFalse)

			r, ok := m.Read(ch, at.Add(10*time.Millisecond))
			So(ok, ShouldBeTrue)
			So(r.Temperature, ShouldEqual, 400.0)
		})
	})
}

func TestMonitorIsolation(t *testing.T) {
	Convey("A failing channel does not affect another", t, func() {
		m := newTestMonitor()
		bad := &fakeDriver{configureErr: errDevice, probeErr: errDevice}
		good := &fakeDriver{value: 12}
		channels := []*Channel{NewChannel(EnvironmentCombo, bad), NewChannel(DistanceSensor, good)}
		t0 := time.Unix(0, 0)
		for _, ch := range channels {
			m.Boot(ch, t0)
		}

		for i := 1; i <= 60; i++ {
			now := t0.Add(time.Duration(i) * time.Second)
			m.ProbeAll(channels, now)
			m.Read(channels[0], now)
			_, ok := m.Read(channels[1], now)
			So(ok, ShouldBeTrue)
		}
		So(channels[0].State, ShouldEqual, Failed)
		So(bad.probeCalls, ShouldEqual, 6)
		So(good.readCalls, ShouldEqual, 60)
	})
}

func TestKind(t *testing.T) {
	for _, k := range Kinds {
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, ok)
		}
		if k.Class() == 0 {
			t.Errorf("%s has no frame class", k)
		}
	}
	if DryTempProbe.Class() != WetTempProbe.Class() {
		t.Error("temperature probes must share a class")
	}
	if _, ok := ParseKind("humidity"); ok {
		t.Error("unexpected kind")
	}
}

func TestNewReading(t *testing.T) {
	r := NewReading()
	for _, v := range []float64{r.Temperature, r.Humidity, r.Pressure, r.CO2, r.Distance, r.Ambient, r.Signal} {
		if !math.IsNaN(v) {
			t.Fatalf("expected NaN, got %v", v)
		}
	}
}
