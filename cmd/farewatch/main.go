package main

import (
	"farewatch/cmd/farewatch/cmd"
	"farewatch/lib/serviceutil"
)

func main() {
	ctx := serviceutil.SignalContext()
	cmd.Execute(ctx)
}
