// Package executor provides the sandboxed code execution engine.
//
// The executor package validates incoming execution requests and runs them
// to completion inside isolated execution contexts. Each execution gets a
// fresh sandbox (a hardened container, or a restricted host process in
// direct mode) that is destroyed unconditionally at the end of the request,
// whether it completed, timed out, hit a resource limit, or was cancelled.
// No state created during one execution is visible to the next.
//
// Every failure mode is represented in the result's ExitStatus rather than
// as a returned error, so callers always receive a structured outcome.
//
// Usage:
//
//	validator := executor.NewValidator(bounds)
//	engine := executor.NewEngine(logger, engineCfg, runtimes)
//	req, err := validator.Validate(executor.RawRequest{
//	    Language: "python",
//	    Source:   "print('Hello, World!')",
//	})
//	if err != nil {
//	    // rejected before any sandbox was provisioned
//	}
//	result := engine.Execute(ctx, req)
package executor
