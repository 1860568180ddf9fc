// cmd/nodesim/main.go
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/FabianPetersen/cantelemetry"
	"github.com/FabianPetersen/cantelemetry/codec"
	"github.com/FabianPetersen/cantelemetry/config"
	"github.com/FabianPetersen/cantelemetry/node"
	"github.com/FabianPetersen/cantelemetry/scheduler"
	"github.com/FabianPetersen/cantelemetry/sensor"
)

// bench is the profile used when none is given: every sensor simulated.
const bench = `
node:
  id: 1
bus:
  driver: virtual
schedule:
  tick_ms: 100
sensors:
  dry_temp: {enabled: true, driver: sim}
  wet_temp: {enabled: true, driver: sim}
  environment: {enabled: true, driver: sim}
  co2: {enabled: true, driver: sim}
  distance: {enabled: true, driver: sim}
log:
  level: warn
`

func main() {
	var (
		cfg *config.Config
		err error
	)
	if len(os.Args) > 1 {
		cfg, err = config.Load(os.Args[1])
	} else {
		cfg, err = config.Parse([]byte(bench))
	}
	if err != nil {
		log.Fatalf("profile load failed: %v", err)
	}
	// The bench only ever runs against the simulated bus.
	cfg.Bus.Driver = config.BusVirtual

	clock := scheduler.NewManualClock(time.Now())
	n, err := node.Build(cfg, clock, node.NewLogger(cfg.Log, os.Stderr))
	if err != nil {
		log.Fatalf("node build failed: %v", err)
	}
	defer n.Close()

	if err := n.Scheduler.Boot(); err != nil {
		log.Printf("boot: %v", err)
	}

	tick := func(count int) {
		for i := 0; i < count; i++ {
			clock.Advance(cfg.Schedule.Tick())
			n.Scheduler.Tick()
		}
	}

	kindNames := func([]string) []string {
		names := make([]string, 0, len(n.Sims))
		for kind := range n.Sims {
			names = append(names, kind.String())
		}
		return names
	}

	shell := ishell.New()
	shell.Println(fmt.Sprintf("Node %d bench, %d simulated sensors", cfg.Node.ID, len(n.Sims)))
	shell.ShowPrompt(true)

	shell.AddCmd(&ishell.Cmd{
		Name: "tick",
		Help: "tick [count]",
		Func: func(c *ishell.Context) {
			count := 1
			if len(c.Args) > 0 {
				count, err = strconv.Atoi(c.Args[0])
				if err != nil || count < 1 {
					c.Err(fmt.Errorf("bad count %q", c.Args[0]))
					return
				}
			}
			before := len(n.Virtual.Sent())
			tick(count)
			c.Printf("%d ticks, %d frames\n", count, len(n.Virtual.Sent())-before)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "run",
		Help: "run <seconds>",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("usage: run <seconds>"))
				return
			}
			secs, err := strconv.ParseFloat(c.Args[0], 64)
			if err != nil || secs <= 0 {
				c.Err(fmt.Errorf("bad duration %q", c.Args[0]))
				return
			}
			d := time.Duration(secs * float64(time.Second))
			tick(int(d / cfg.Schedule.Tick()))
			c.Println(n.Scheduler.Diagnostics(clock.Now()).String())
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "print node diagnostics",
		Func: func(c *ishell.Context) {
			d := n.Scheduler.Diagnostics(clock.Now())
			c.Println(d.String())
			if d.InitErr != nil {
				c.Printf("  init error: %v\n", d.InitErr)
			}
			for _, st := range d.Sensors {
				c.Printf("  %-12s %-13s failures=%d recoveries=%d %s\n",
					st.Kind, st.State, st.Failures, st.Recoveries, st.LastErr)
			}
			for _, class := range cantelemetry.Classes {
				if st, ok := d.Frames[class.String()]; ok {
					c.Printf("  %-16s built=%d sent=%d dropped=%d\n", class, st.Built, st.Sent, st.Dropped)
				}
			}
		},
	})

	sim := func(name, help string, apply func(kind sensor.Kind)) {
		shell.AddCmd(&ishell.Cmd{
			Name:      name,
			Help:      help,
			Completer: kindNames,
			Func: func(c *ishell.Context) {
				if len(c.Args) < 1 {
					c.Err(fmt.Errorf("usage: %s", help))
					return
				}
				kind, ok := sensor.ParseKind(c.Args[0])
				if !ok || n.Sims[kind] == nil {
					c.Err(fmt.Errorf("no simulated sensor %q", c.Args[0]))
					return
				}
				apply(kind)
				c.Printf("%s %s\n", kind, name)
			},
		})
	}
	sim("fail", "fail <sensor>", func(k sensor.Kind) { n.Sims[k].Fail() })
	sim("failreads", "failreads <sensor>", func(k sensor.Kind) { n.Sims[k].FailReads() })
	sim("heal", "heal <sensor>", func(k sensor.Kind) { n.Sims[k].Heal() })

	shell.AddCmd(&ishell.Cmd{
		Name: "busoff",
		Help: "drive the bus off",
		Func: func(c *ishell.Context) {
			n.Virtual.AutoRecover = false
			n.Virtual.RaiseBusOff()
			c.Println("bus off, recovery held until 'recovered'")
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "recovered",
		Help: "complete a held bus recovery",
		Func: func(c *ishell.Context) {
			n.Virtual.AutoRecover = true
			n.Virtual.Recover()
			c.Println("bus recovered")
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "frames",
		Help: "frames [count]",
		Func: func(c *ishell.Context) {
			count := 10
			if len(c.Args) > 0 {
				if v, err := strconv.Atoi(c.Args[0]); err == nil && v > 0 {
					count = v
				}
			}
			sent := n.Virtual.Sent()
			if len(sent) > count {
				sent = sent[len(sent)-count:]
			}
			for _, f := range sent {
				c.Println(describe(f))
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "monitor",
		Help: "print every frame as it is sent",
		Func: func(c *ishell.Context) {
			n.Virtual.Subscribe(func(f cantelemetry.Frame) {
				c.Println(describe(f))
			})
			c.Println("monitoring")
		},
	})

	shell.Run()
}

// describe renders a frame with its decoded fields.
func describe(f cantelemetry.Frame) string {
	class, err := f.Class()
	if err != nil {
		return f.String() + "  " + err.Error()
	}
	return f.String() + "  " + class.String() + " " + decode(class, f.Data)
}

func decode(class cantelemetry.SensorClass, p codec.Payload) string {
	var fields []string
	add := func(name string, v codec.Value, unit string) {
		if !v.Valid {
			fields = append(fields, name+"=n/a")
			return
		}
		fields = append(fields, fmt.Sprintf("%s=%.2f%s", name, v.V, unit))
	}

	switch class {
	case cantelemetry.ClassDualTemperature:
		r := codec.DecodeDualTemperature(p)
		add("dry", r.Dry, "C")
		add("wet", r.Wet, "C")
		fields = append(fields, fmt.Sprintf("counter=%d", r.Counter))
	case cantelemetry.ClassEnvironment:
		r := codec.DecodeEnvironment(p)
		add("t", r.Temperature, "C")
		add("rh", r.Humidity, "%")
		add("p", r.Pressure, "hPa")
	case cantelemetry.ClassCO2:
		r := codec.DecodeCO2(p)
		add("co2", r.PPM, "ppm")
		add("t", r.Temperature, "C")
		add("rh", r.Humidity, "%")
	case cantelemetry.ClassDistance:
		r := codec.DecodeDistance(p)
		add("d", r.Millimetres, "mm")
		add("ambient", r.Ambient, "")
		add("signal", r.Signal, "")
	case cantelemetry.ClassHeartbeat:
		up, err := codec.DecodeHeartbeat(p)
		if err != nil {
			return err.Error()
		}
		fields = append(fields, "uptime="+up.String())
	}
	return strings.Join(fields, " ")
}
