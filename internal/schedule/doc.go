// Package schedule runs the weekly pipeline on a timer.
//
// On macOS the job is a launchd agent: RenderPlist produces the property
// list and Manager loads, unloads and inspects it through launchctl. On
// other hosts the daemon command uses Cron, an in-process scheduler.
package schedule
