package workflows

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker) {
	w.RegisterWorkflow(DocumentIndexWorkflow)
	w.RegisterWorkflow(DocumentDeleteWorkflow)
	w.RegisterWorkflow(DocumentBatchIndexWorkflow)
	w.RegisterWorkflow(AnswerWorkflow)
	w.RegisterWorkflow(ProjectAnswerWorkflow)
	w.RegisterWorkflow(EvaluationWorkflow)
}
