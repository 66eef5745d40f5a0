package ipc

import "golang.org/x/sys/unix"

var platformSignals = []signalPolicy{
	{sig: unix.SIGPWR},
}
