package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/aceportal/formflow/core/form"
	"github.com/aceportal/formflow/core/notification"
)

type formApi struct {
	deps ServerDeps
}

func registerFormAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := formApi{deps: deps}

	fg := g.Group("/forms", jwt)

	// student endpoints
	fg.GET("/assigned", api.queryAssigned, studentMiddleware())
	fg.POST("/:id/submit", api.submit, studentMiddleware())

	// staff endpoints
	sg := fg.Group("", staffMiddleware())
	sg.POST("", api.create)
	sg.GET("", api.query)

	dg := sg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("/fields", api.updateFields)
	dg.DELETE("", api.destroy)
	dg.POST("/assign", api.assign)
	dg.GET("/status", api.status)
	dg.GET("/recipients", api.recipientStatuses)
	dg.GET("/responses", api.responses)
	dg.DELETE("/responses/:userID", api.rejectResponse)
	dg.GET("/groups", api.assignedGroups)
	dg.POST("/remind", api.remindPending)
}

// Handlers

func (api *formApi) create(ctx echo.Context) error {
	var data form.NewForm
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewForm")
	}
	if err := api.deps.Validate.Struct(&data); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.deps.UsrSvc)
	if err != nil {
		return err
	}
	frm, err := api.deps.FormSvc.Create(ctx.Request().Context(), data, actor.ID)
	if err != nil {
		return errors.Wrap(err, "creating form")
	}
	return ctx.JSON(http.StatusCreated, frm)
}

func (api *formApi) query(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.deps.UsrSvc)
	if err != nil {
		return err
	}
	forms, err := api.deps.FormSvc.QueryByActor(ctx.Request().Context(), actor.ID)
	if err != nil {
		return errors.Wrap(err, "querying forms")
	}
	return ctx.JSON(http.StatusOK, forms)
}

func (api *formApi) retrieve(ctx echo.Context) error {
	id, err := formID(ctx)
	if err != nil {
		return err
	}
	frm, err := api.deps.FormSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, frm)
}

func (api *formApi) updateFields(ctx echo.Context) error {
	id, err := formID(ctx)
	if err != nil {
		return err
	}
	var data UpdateFieldsRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateFieldsRequest")
	}
	if err = api.deps.FormSvc.UpdateFields(ctx.Request().Context(), id, data.Fields); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *formApi) destroy(ctx echo.Context) error {
	id, err := formID(ctx)
	if err != nil {
		return err
	}
	if err = api.deps.FormSvc.Delete(ctx.Request().Context(), id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *formApi) assign(ctx echo.Context) error {
	id, err := formID(ctx)
	if err != nil {
		return err
	}
	var data AssignRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignRequest")
	}

	actor, err := getContextUser(ctx, api.deps.UsrSvc)
	if err != nil {
		return err
	}
	if err = api.deps.FormSvc.Assign(ctx.Request().Context(), id, data.Targets, actor.ID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusCreated)
}

func (api *formApi) status(ctx echo.Context) error {
	id, err := formID(ctx)
	if err != nil {
		return err
	}
	st, err := api.deps.FormSvc.Status(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *formApi) recipientStatuses(ctx echo.Context) error {
	id, err := formID(ctx)
	if err != nil {
		return err
	}
	statuses, err := api.deps.FormSvc.RecipientStatuses(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, statuses)
}

func (api *formApi) responses(ctx echo.Context) error {
	id, err := formID(ctx)
	if err != nil {
		return err
	}
	subs, err := api.deps.FormSvc.Responses(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, subs)
}

// rejectResponse clears a submission so the student can fill the form again.
func (api *formApi) rejectResponse(ctx echo.Context) error {
	id, err := formID(ctx)
	if err != nil {
		return err
	}
	userID, err := strconv.Atoi(ctx.Param("userID"))
	if err != nil {
		return errHttpNotFound
	}
	if err = api.deps.FormSvc.ClearSubmission(ctx.Request().Context(), id, userID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *formApi) assignedGroups(ctx echo.Context) error {
	id, err := formID(ctx)
	if err != nil {
		return err
	}
	groups, err := api.deps.FormSvc.AssignedGroups(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *formApi) remindPending(ctx echo.Context) error {
	id, err := formID(ctx)
	if err != nil {
		return err
	}
	var data RemindRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RemindRequest")
	}
	if len(data.Channels) == 0 {
		data.Channels = []string{notification.ChannelEmail, notification.ChannelInApp}
	}

	actor, err := getContextUser(ctx, api.deps.UsrSvc)
	if err != nil {
		return err
	}
	res, err := api.deps.NotifSvc.RemindPending(ctx.Request().Context(), id, data.Channels, actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

// student handlers

func (api *formApi) queryAssigned(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.deps.UsrSvc)
	if err != nil {
		return err
	}
	forms, err := api.deps.FormSvc.AssignedForms(ctx.Request().Context(), actor.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, forms)
}

func (api *formApi) submit(ctx echo.Context) error {
	id, err := formID(ctx)
	if err != nil {
		return err
	}
	var data SubmitRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitRequest")
	}

	actor, err := getContextUser(ctx, api.deps.UsrSvc)
	if err != nil {
		return err
	}
	sub, err := api.deps.FormSvc.Submit(ctx.Request().Context(), id, actor.ID, data.Payload)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func formID(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return 0, errHttpNotFound
	}
	return id, nil
}

type (
	UpdateFieldsRequest struct {
		Fields []form.Field `json:"fields"`
	}

	AssignRequest struct {
		Targets []form.NewAssignment `json:"targets"`
	}

	RemindRequest struct {
		Channels []string `json:"channels"`
	}

	SubmitRequest struct {
		Payload map[string]interface{} `json:"submission_data"`
	}
)
