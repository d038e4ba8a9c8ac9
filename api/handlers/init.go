package handlers

import "github.com/customeros/mailtriage/interfaces"

type APIHandlers struct {
	scheduler  interfaces.Scheduler
	classifier interfaces.ClassifierService
}

func InitHandlers(scheduler interfaces.Scheduler, classifier interfaces.ClassifierService) *APIHandlers {
	return &APIHandlers{
		scheduler:  scheduler,
		classifier: classifier,
	}
}
