// Package discovery locates GoodWe-class inverters on the local network
// via UDP broadcast.
//
// Inverters answer a reserved probe command with a reply carrying their
// command port and family identifier. Discovery sends one probe to the
// broadcast address and then collects replies for a fixed window; it does
// not require (and does not create) an inverter.Handler.
//
// # Discovery Process
//
//  1. Open an ephemeral UDP endpoint
//  2. Broadcast a single probe frame to the command port
//  3. Collect every validly-framed reply until the window closes
//  4. De-duplicate replies by sender IP (last seen wins)
//  5. Return the collected records (possibly none)
//
// # Usage Example
//
//	records, err := discovery.Discover(discovery.Options{Timeout: 3 * time.Second})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, r := range records {
//	    fmt.Println(r) // "ET inverter at 192.168.1.100:8899"
//	}
//
// # Network Requirements
//
//   - The host must be on the same broadcast domain as the inverters
//   - Firewalls must allow UDP to and from the command port (default 8899)
//   - Directed broadcasts can be used via Options.BroadcastAddr when the
//     limited broadcast address is filtered
package discovery
