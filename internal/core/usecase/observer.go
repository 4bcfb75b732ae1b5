package usecase

import "github.com/kirillkom/quarterly-financial-analyser/internal/core/ports"

type nopObserver struct{}

func (nopObserver) ObserveDocument(string, string, string) {}
func (nopObserver) ObserveIndexRun(string, float64)        {}
func (nopObserver) ObserveAgentRun(string, int)            {}

func observerOrNop(observer ports.PipelineObserver) ports.PipelineObserver {
	if observer == nil {
		return nopObserver{}
	}
	return observer
}
