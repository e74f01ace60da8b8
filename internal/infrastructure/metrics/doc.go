// Package metrics exposes Prometheus instrumentation for PoolSync Core.
//
// All metrics live on a private registry so multiple instances (tests
// included) never collide. Serve them with Handler:
//
//	m := metrics.New()
//	router.Handle("/metrics", m.Handler())
//
// and feed them from the engine's hooks:
//
//	eng.AddListener(func(r engine.CycleResult) {
//		m.ObserveCycle(r, nil)
//		m.ObserveSnapshot(eng.Snapshot())
//	})
//	eng.OnCommand(m.ObserveCommand)
package metrics
