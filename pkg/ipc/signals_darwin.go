package ipc

// darwin has no SIGPWR
var platformSignals []signalPolicy
