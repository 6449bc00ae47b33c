/*
Package resilience provides a circuit breaker used to isolate a misbehaving
application loader.

# Usage

	breaker := resilience.New("loader", resilience.Settings{
		Failures: 5,
		Cooldown: 30 * time.Second,
	})

	err := breaker.Execute(func() error {
		return load(code)
	})

# States

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[success]-> Closed
	                                              |
	                                          [failure]
	                                              v
	                                            Open
*/
package resilience
