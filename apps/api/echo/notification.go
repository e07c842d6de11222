package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/aceportal/formflow/core/notification"
)

type notificationApi struct {
	deps ServerDeps
}

func registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := notificationApi{deps: deps}

	ng := g.Group("/notifications", jwt)

	ng.GET("/inbox", api.inbox)
	ng.GET("/summary", api.summary)
	ng.POST("/:id/read", api.markRead)

	// staff endpoints
	sg := ng.Group("", staffMiddleware())
	sg.POST("", api.send)
	sg.GET("/sent", api.querySent)
	sg.GET("/history", api.campaignHistory)
	sg.GET("/channel-stats/:formID", api.channelStats)
	sg.GET("/:id/details", api.details)
}

// Handlers

func (api *notificationApi) send(ctx echo.Context) error {
	var data notification.NewNotification
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNotification")
	}
	if err := api.deps.Validate.Struct(&data); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.deps.UsrSvc)
	if err != nil {
		return err
	}
	res, err := api.deps.NotifSvc.Send(ctx.Request().Context(), data, actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *notificationApi) inbox(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.deps.UsrSvc)
	if err != nil {
		return err
	}
	items, err := api.deps.NotifSvc.Inbox(ctx.Request().Context(), actor.ID)
	if err != nil {
		return errors.Wrap(err, "querying inbox")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *notificationApi) querySent(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.deps.UsrSvc)
	if err != nil {
		return err
	}
	sent, err := api.deps.NotifSvc.Sent(ctx.Request().Context(), actor.ID)
	if err != nil {
		return errors.Wrap(err, "querying sent notifications")
	}
	return ctx.JSON(http.StatusOK, sent)
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	id, err := notificationID(ctx)
	if err != nil {
		return err
	}
	actor, err := getContextUser(ctx, api.deps.UsrSvc)
	if err != nil {
		return err
	}
	if err = api.deps.NotifSvc.MarkRead(ctx.Request().Context(), id, actor.ID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *notificationApi) details(ctx echo.Context) error {
	id, err := notificationID(ctx)
	if err != nil {
		return err
	}
	det, err := api.deps.NotifSvc.Details(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, det)
}

func (api *notificationApi) summary(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.deps.UsrSvc)
	if err != nil {
		return err
	}
	sum, err := api.deps.NotifSvc.Summary(ctx.Request().Context(), actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *notificationApi) campaignHistory(ctx echo.Context) error {
	history, err := api.deps.NotifSvc.CampaignHistory(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying campaign history")
	}
	return ctx.JSON(http.StatusOK, history)
}

func (api *notificationApi) channelStats(ctx echo.Context) error {
	formID, err := strconv.Atoi(ctx.Param("formID"))
	if err != nil {
		return errHttpNotFound
	}
	stats, err := api.deps.NotifSvc.ChannelStats(ctx.Request().Context(), formID)
	if err != nil {
		return errors.Wrap(err, "querying channel stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func notificationID(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return 0, errHttpNotFound
	}
	return id, nil
}
