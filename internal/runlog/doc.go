// Package runlog keeps a history of finished device-set runs.
//
// Every governing command a deviceset.Set resolves is turned into a Run and
// stored in the dispatch_runs SQLite table. The Recorder also writes an
// InfluxDB metric per run and publishes the run on the actor's MQTT run
// topic when those are configured.
//
//	rec := runlog.NewRecorder(runlog.RecorderConfig{
//	    ActorID:    cfg.Actor.ID,
//	    Repository: runlog.NewSQLiteRepository(db.DB),
//	})
//	rec.Start()
//	defer rec.Stop()
package runlog
