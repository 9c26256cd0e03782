// Package inverter implements the client-side protocol stack for talking
// to GoodWe-class solar inverters over a LAN.
//
// A Handler owns one transport (UDP with AA55 framing by default, or
// Modbus-TCP) and drives request/response exchanges against a single
// device: connection lifecycle, timeout-bounded correlation, bounded retry
// with exponential backoff, and health counters. Failures are classified
// into a fixed error taxonomy and enriched with a context snapshot and
// remediation suggestions before they reach the caller; raw transport
// errors never leak out of this package.
//
// # Usage Example
//
//	h := inverter.NewHandler(inverter.Config{
//	    Host:   "192.168.1.100",
//	    Family: inverter.FamilyET,
//	})
//	if err := h.Connect(); err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Disconnect()
//
//	data, err := h.ReadRuntimeData()
//	if err != nil {
//	    var ce *inverter.CommError
//	    if errors.As(err, &ce) {
//	        for _, s := range ce.Suggestions {
//	            fmt.Println("  -", s)
//	        }
//	    }
//	    return
//	}
//	fmt.Println(data["ppv"], "W")
//
// # State Transitions
//
// Handlers report state through registered observers:
//
//	h.OnStatus(func(s inverter.Status) { fmt.Println("status:", s) })
//
// emitting connecting, connected, disconnected, retrying, and error in the
// order the transitions happen. Observers are per-handler; there is no
// process-wide event bus.
//
// # Concurrency
//
// A handler serializes its own exchanges: one request is in flight at a
// time, and a concurrent SendCommand waits its turn. GetStatus never
// blocks behind an exchange. Independent handlers may run concurrently,
// including against the same physical device.
package inverter
