package backoff

import "runtime"

func defaultYield() { runtime.Gosched() }
