package main

import (
	"net/http"

	"github.com/xingyi1145/Neural-Network-Playground/internal/template"
)

func (api *playgroundAPI) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list := api.catalog.All()
	if datasetID := r.URL.Query().Get("dataset_id"); datasetID != "" {
		list = api.catalog.ForDataset(datasetID)
		if list == nil {
			list = []template.Template{}
		}
	}
	api.writeJSON(w, http.StatusOK, list)
}

func (api *playgroundAPI) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := api.catalog.Get(r.PathValue("template_id"))
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, tpl)
}
