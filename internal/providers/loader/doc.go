/*
Package loader turns submitted JavaScript bundles into runnable applications
using the goja engine.

# Bundle contract

A bundle registers itself in one of two ways:

	ant.runtime.setCurrentApp(onInitialize, onStart, onStop, onGetInfo);

or by declaring global functions:

	function start() { return 'Success'; }
	function getInfo() { return { name: 'demo' }; }

onInitialize runs once at load time. The start entry point reports success
by returning "Success" or nothing; any other return value or a thrown
exception is a failure.

# Sandbox

Each bundle gets its own VM. require, process, module and exports are
removed, timers are inert and console output goes to the host logger. Every
call into the bundle runs under a deadline and the VM is interrupted when it
expires, so a hung bundle cannot block the host.
*/
package loader
