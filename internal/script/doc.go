// Package script runs user Lua programs against the brick and stores them.
//
// The Manager executes one script at a time in a gopher-lua state that only
// has the base, table, string and math libraries. Scripts reach the
// hardware through the ev3 global:
//
//	local m = ev3.getLargeMotor("A")
//	m:setSpeed(360)
//	m:forward()
//	while ev3.isOk() and not ev3.getTouchSensor("S1"):isPushed() do
//	    ev3.sleep(20)
//	end
//	m:stop(true)
//	ev3.notify("done")
//
// Script files live in the scripts table. Names beginning with "__" are
// built-in samples and cannot be changed or deleted.
package script
