// Package gateway runs the relay: it drains the radio receive queue, hands
// each frame to the registry, key exchange or assembler, publishes verified
// readings and queues the replies on the emitter.
//
// All protocol state is mutated by a single worker goroutine. The emitter
// owns the only other goroutine that touches the radio.
//
// Example:
//
//	q := radio.NewQueue(radio.QueueConfig{})
//	tr, _ := radio.NewSerial(radio.SerialConfig{Device: "/dev/ttyUSB0", FrameHandler: q.Handle, ...})
//	gw, _ := gateway.New(gateway.Config{
//	    Transport: tr,
//	    Queue:     q,
//	    Identity:  id,
//	    Registry:  reg,
//	    Sink:      sink,
//	})
//	gw.Start(ctx)
//	defer gw.Stop()
package gateway
