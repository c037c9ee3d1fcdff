package main

import (
	"fmt"
	"runtime"
	"time"

	"SortyxServer/logger"
)

// JobPackage is one unit of inference work. Exec runs on a worker goroutine
// pinned to an OS thread; its return value is delivered on Result.
type JobPackage struct {
	Exec   func() interface{}
	Result chan interface{}
}

var JobQueue chan JobPackage

// StartWorker spins up the inference worker pool. DNN forward passes all go
// through the pool so concurrent HTTP requests never race on the networks.
func StartWorker(workerNum int) {
	JobQueue = make(chan JobPackage, workerNum*2)
	for i := 0; i < workerNum; i++ {
		go runWorker(i)
	}
}

func runWorker(workerID int) {
	defer func() {
		if r := recover(); r != nil {
			output := fmt.Sprintf("Worker %d panic: %v. Restarting in 1s...\n", workerID, r)
			logger.Log().Error(output)
			time.Sleep(1 * time.Second)
			go runWorker(workerID)
		}
	}()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	output := fmt.Sprintf("---Worker %d created\n", workerID)
	logger.Log().Info(output)
	for job := range JobQueue {
		job.Result <- safeExec(workerID, job.Exec)
	}
}

// safeExec contains a panicking job so its caller always gets a result; a
// panic yields nil and the worker keeps serving the queue.
func safeExec(workerID int, exec func() interface{}) (result interface{}) {
	defer func() {
		if r := recover(); r != nil {
			output := fmt.Sprintf("Worker %d job panic: %v\n", workerID, r)
			logger.Log().Error(output)
			result = nil
		}
	}()
	return exec()
}

// Submit queues exec on the pool and blocks until it finishes.
func Submit(exec func() interface{}) interface{} {
	result := make(chan interface{}, 1)
	JobQueue <- JobPackage{Exec: exec, Result: result}
	return <-result
}
