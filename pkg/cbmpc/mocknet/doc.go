// Package mocknet provides an in-memory transport for tests and examples.
//
// Messages between each ordered pair of parties are sequenced, so delivery is
// FIFO per direction even when the engine sends from several goroutines.
// ReceiveAll returns messages aligned to the requested senders. Endpoints can
// be scoped to a job session with WithSession so concurrent jobs share one
// Net.
//
//	net := mocknet.New()
//	p1 := net.Ep2P(0, 1)
//	p2 := net.Ep2P(1, 0)
//
// Run and Run2P start one goroutine per party:
//
//	err := mocknet.Run(ctx, 3, func(ctx context.Context, self cbmpc.RoleID, t cbmpc.Transport) error {
//	    job, err := cbmpc.NewJobMPWithContext(ctx, lib, t, 3, self)
//	    if err != nil {
//	        return err
//	    }
//	    defer job.Close()
//	    _, err = agreerandom.MultiAgreeRandom(ctx, job, 256)
//	    return err
//	})
package mocknet
