// Package storage writes downloaded media and the run log.
//
// Files are written to a temporary path and renamed into place, so a crash
// never leaves a half-written file under its final name. Media goes into a
// Stories or Reels folder below the output directory, named from a pattern
// such as "igfetch_{target}_{date}_{index}.{ext}".
//
//	manager, err := storage.NewManager(cfg.Download.OutputDir, cfg.Download.FileNamePattern)
//	path, err := manager.SaveMedia(body, "natgeo", models.LinkStory, 1, "jpg")
package storage
